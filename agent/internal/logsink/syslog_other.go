//go:build windows || plan9

package logsink

import (
	"errors"
	"io"
)

func dialSyslog(string) (io.WriteCloser, error) {
	return nil, errors.New("syslog is not supported on this platform")
}
