package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

func EnableTrace(on bool) {
	if on {
		L.SetLevel(hclog.Trace)
		return
	}

	if str := os.Getenv("TRACE"); str == "" {
		L.SetLevel(hclog.Info)
	}
}
