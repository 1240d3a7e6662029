package diesel

import (
	"strings"

	"github.com/andewx/diesel/driver"
)

// CompileShader compiles source for target (for example "vs_5_0") starting at
// entry. Platform diagnostics end up in the returned *Error's Detail.
func CompileShader(p driver.Platform, source, target, entry string, flags driver.CompileFlag) (*ShaderBlob, error) {
	status, code, diag := p.Compile([]byte(source), "", entry, target, flags)
	var detail string
	if diag != nil {
		detail = strings.TrimRight(string(diag.Bytes()), "\x00\r\n ")
		diag.Release()
	}
	blob, err := Wrap("compile "+target+" "+entry, status, code, func(r *Ref[driver.Blob]) *ShaderBlob {
		return &ShaderBlob{ref: r}
	})
	if e, ok := err.(*Error); ok {
		e.Detail = detail
	}
	return blob, err
}
