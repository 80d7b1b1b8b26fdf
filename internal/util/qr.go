package util

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// PrintTerminalQR renders value as a scannable QR code on stdout. Failures
// are silent; the URL is always printed alongside it anyway.
func PrintTerminalQR(value string) {
	qr, err := qrcode.New(value, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Println(qr.ToSmallString(false))
}
