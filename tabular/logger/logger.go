// Package logger holds the process-wide structured logger used by the server
// and the command line tool. Library packages report through annotations
// instead; EventHandler bridges the two.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wbrown/janus-tabular/tabular/annotations"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// JSONOutput is set when Initialize selected JSON output
	JSONOutput bool
)

func init() {
	// Safe no-op until Initialize is called
	Logger = zap.NewNop().Sugar()
}

// Initialize installs the global logger: JSON lines for machines, or a
// console encoder for humans.
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err := config.Build()
		if err != nil {
			return err
		}
		Logger = zapLogger.Sugar()
		return nil
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	Logger = zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			zap.InfoLevel,
		),
	).Sugar()
	return nil
}

// Use installs l as the global logger; tests use it with an observer core.
func Use(l *zap.Logger) {
	Logger = l.Sugar()
}

// EventHandler forwards annotations to the global logger at debug level.
// Error annotations are logged as warnings.
func EventHandler() annotations.Handler {
	return func(e annotations.Event) {
		kv := make([]interface{}, 0, 2*len(e.Data)+2)
		kv = append(kv, "latency", e.Latency)
		for k, v := range e.Data {
			kv = append(kv, k, v)
		}
		if len(e.Name) > 6 && e.Name[:6] == "error/" {
			Logger.Warnw(e.Name, kv...)
			return
		}
		Logger.Debugw(e.Name, kv...)
	}
}
