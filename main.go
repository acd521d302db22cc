// The main package for the weblens executable.
package main

import (
	"github.com/vasilistotskas/weblens-sub000/cmd"
)

func main() {
	cmd.Execute()
}
