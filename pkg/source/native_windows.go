//go:build windows

package source

import (
	"context"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

var (
	modkernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemPowerStatus = modkernel32.NewProc("GetSystemPowerStatus")
)

// PowerStatus is the native power status source on Windows.
type PowerStatus struct{}

func NewPowerStatus() *PowerStatus {
	return &PowerStatus{}
}

func (p *PowerStatus) Name() string {
	return "GetSystemPowerStatus"
}

func (p *PowerStatus) read() (systemPowerStatus, error) {
	var s systemPowerStatus
	if err := procGetSystemPowerStatus.Find(); err != nil {
		return s, err
	}
	r, _, err := procGetSystemPowerStatus.Call(uintptr(unsafe.Pointer(&s)))
	if r == 0 {
		return s, err
	}
	return s, nil
}

func (p *PowerStatus) Present(_ context.Context) Result[bool] {
	s, err := p.read()
	if err != nil {
		return Unavailable[bool]("GetSystemPowerStatus: %v", err)
	}
	present, known := s.present()
	if !known {
		return Unavailable[bool]("battery flag unknown")
	}
	return OK(present)
}

func (p *PowerStatus) Live(_ context.Context) Result[powerinfo.Live] {
	s, err := p.read()
	if err != nil {
		return Unavailable[powerinfo.Live]("GetSystemPowerStatus: %v", err)
	}
	if present, known := s.present(); known && !present {
		return Unavailable[powerinfo.Live]("no system battery")
	}
	return OK(s.live())
}
