package cascstore

import "github.com/ngdp-go/cascstore/logx"

// Logger and Fields are re-exported from logx so callers configuring a
// Client don't need a second import for the same capability every leaf
// package (archive, cache, protocol, install) already accepts.
type Logger = logx.Logger
type Fields = logx.Fields

// NopLogger discards every log call.
type NopLogger = logx.NopLogger
