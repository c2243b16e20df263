//go:build !unix

package modules

import "os/exec"

// killGroupOnCancel keeps exec's default of killing only the direct child.
func killGroupOnCancel(*exec.Cmd) {}
