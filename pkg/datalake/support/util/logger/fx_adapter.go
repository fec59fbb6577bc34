package logger

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// Module routes Fx container events through this logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)

// FxLoggerAdapter implements fxevent.Logger. Container wiring is logged at DEBUG,
// failures at ERROR.
type FxLoggerAdapter struct{}

func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("fx: OnStart %s", funcName(e.FunctionName))
	case *fxevent.OnStartExecuted:
		outcome("OnStart "+funcName(e.FunctionName), e.Err, "done in %s", e.Runtime)
	case *fxevent.OnStopExecuting:
		Debugf("fx: OnStop %s", funcName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		outcome("OnStop "+funcName(e.FunctionName), e.Err, "done in %s", e.Runtime)
	case *fxevent.Supplied:
		outcome("supply "+e.TypeName, e.Err, "ok")
	case *fxevent.Provided:
		outcome("provide "+strings.Join(e.OutputTypeNames, ", "), e.Err, "by %s", funcName(e.ConstructorName))
	case *fxevent.Decorated:
		outcome("decorate "+strings.Join(e.OutputTypeNames, ", "), e.Err, "by %s", funcName(e.DecoratorName))
	case *fxevent.Invoking:
		Debugf("fx: invoke %s", funcName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		Debugf("fx: received %s", e.Signal)
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("fx: rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		outcome("start", e.Err, "application started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: logger initialization failed: %v", e.Err)
		}
	}
}

func outcome(what string, err error, format string, args ...any) {
	if err != nil {
		Errorf("fx: %s failed: %v", what, err)
		return
	}
	Debugf("fx: "+what+": "+format, args...)
}

// funcName strips closure suffixes such as ".func1".
func funcName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
