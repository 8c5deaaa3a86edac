package logger

// Logger is the component-scoped structured logger used across the service
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

type nopLogger struct{}

// Nop returns a Logger that discards everything
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, string, map[string]interface{})   {}
func (nopLogger) Info(string, string, map[string]interface{})    {}
func (nopLogger) Warning(string, string, map[string]interface{}) {}
func (nopLogger) Error(string, error, map[string]interface{})    {}
