package obs

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide JSON-line logger. Both request logging and
// audit events write through it so output stays one stream.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one structured line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		LogError("log marshal failed", err)
		return
	}
	Logger().Println(string(data))
}

// LogError emits a structured error line.
func LogError(msg string, err error) {
	entry := map[string]string{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "error",
		"msg":   msg,
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	data, merr := json.Marshal(entry)
	if merr != nil {
		Logger().Println(fmt.Sprintf(`{"level":"error","msg":%q}`, msg))
		return
	}
	Logger().Println(string(data))
}
