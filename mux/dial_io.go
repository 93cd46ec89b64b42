package mux

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
)

type ioduplex struct {
	io.WriteCloser
	io.ReadCloser
}

// Close closes both halves and reports every failure.
func (d *ioduplex) Close() error {
	var result *multierror.Error
	if err := d.WriteCloser.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.ReadCloser.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// DialIO returns a Transport using a WriteCloser and ReadCloser.
func DialIO(out io.WriteCloser, in io.ReadCloser) Transport {
	return NewStreamTransport(&ioduplex{out, in})
}

// DialStdio returns a Transport using Stdout and Stdin.
func DialStdio() Transport {
	return DialIO(os.Stdout, os.Stdin)
}
