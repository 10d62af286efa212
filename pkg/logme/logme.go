package logme

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var isDebugMode bool = os.Getenv("DEBUG") == "1"

func DebugF(msg string, args ...interface{}) {
	if isDebugMode {
		fmt.Print("[DEBUG] ")
		fmt.Fprintf(os.Stdout, msg, args...)
	}
}

func DebugFln(msg string, args ...interface{}) {
	if isDebugMode {
		fmt.Print("[DEBUG] ")
		fmt.Fprintf(os.Stdout, msg+"\n", args...)
	}
}

func Debugln(args ...interface{}) {
	if isDebugMode {
		fmt.Print("[DEBUG] ")
		fmt.Fprintln(os.Stdout, args...)
	}
}

func InfoF(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, msg, args...)
}

func Infoln(arg ...interface{}) {
	fmt.Fprintln(os.Stdout, arg...)
}

func WarnF(msg string, args ...interface{}) {
	fmt.Print(color.YellowString("[WARN] "))
	fmt.Fprintf(os.Stdout, msg, args...)
}

func Warnln(arg ...interface{}) {
	fmt.Print(color.YellowString("[WARN] "))
	fmt.Fprintln(os.Stdout, arg...)
}

func ErrorF(msg string, args ...interface{}) {
	fmt.Fprint(os.Stderr, color.RedString("[ERROR] "))
	fmt.Fprintf(os.Stderr, msg, args...)
}

func Errorln(arg ...interface{}) {
	fmt.Fprint(os.Stderr, color.RedString("[ERROR] "))
	fmt.Fprintln(os.Stderr, arg...)
}
