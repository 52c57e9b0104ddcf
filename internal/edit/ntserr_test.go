package edit

import "github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"

func asNtsErr(err error) (*ntserr.Error, bool) {
	return ntserr.As(err)
}
