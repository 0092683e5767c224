package log

import "context"

type nopLogger struct{}

func (nopLogger) Infof(context.Context, string, ...any)  {}
func (nopLogger) Warnf(context.Context, string, ...any)  {}
func (nopLogger) Errorf(context.Context, string, ...any) {}
func (nopLogger) Debugf(context.Context, string, ...any) {}

var nop Logger = nopLogger{}

// NewNopは、何も出力しないロガーを返却します。
//
// 返却値は全ての呼び出しで共有されます。
func NewNop() Logger {
	return nop
}
