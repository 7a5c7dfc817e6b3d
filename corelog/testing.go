package corelog

// Discard is a Logger that drops everything, used by tests that don't
// care about log output but still need to satisfy a Logger dependency.
type Discard struct{}

func (Discard) Debug(string, ...interface{})        {}
func (Discard) Info(string, ...interface{})         {}
func (Discard) Error(string, error, ...interface{}) {}
func (Discard) Crit(string, error, ...interface{})  {}
func (d Discard) With(...interface{}) Logger        { return d }
