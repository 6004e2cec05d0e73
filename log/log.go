package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name: "jasos",
	})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// Redirect rebuilds L to write to w. The shell uses it to keep log
// output off the console it's drawing on.
func Redirect(w io.Writer) {
	level := L.GetLevel()

	L = hclog.New(&hclog.LoggerOptions{
		Name:   "jasos",
		Output: w,
		Level:  level,
	})
}
