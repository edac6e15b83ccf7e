// Package kfmt provides the formatted diagnostic output facility used by all
// kernel subsystems. Output produced before a console sink is attached is
// buffered and replayed once SetOutputSink is called.
package kfmt

import (
	"bytes"
	"fmt"
	"io"
)

var (
	// earlyPrintBuffer stores Printf output emitted before the console
	// device is initialized.
	earlyPrintBuffer bytes.Buffer

	// outputSink is the io.Writer where Printf sends its output. If set
	// to nil, output is redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
		earlyPrintBuffer.Reset()
	}
}

// GetOutputSink returns the currently active output sink. It returns nil if
// no console sink has been attached yet.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes a formatted message to the active output sink. If no sink is
// attached yet, the message is buffered until one is.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to the
// supplied io.Writer. A nil writer routes the output to the early buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = &earlyPrintBuffer
	}
	fmt.Fprintf(w, format, args...)
}
