//go:build !windows && !plan9

package logsink

import (
	"log/syslog"
)

func dialSyslog(tag string) (*syslog.Writer, error) {
	return syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
}
