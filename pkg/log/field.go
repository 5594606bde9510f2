package log

// Field is a single piece of structured context attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err creates a field named "error" carrying err's message. A nil err
// yields a field with a nil value so call sites don't need to guard.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component creates the field used to tag a logger with its owning
// component (see WithComponent).
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// fieldsToMap flattens a Field slice into a Fields map, last write wins.
func fieldsToMap(fields []Field) Fields {
	if len(fields) == 0 {
		return nil
	}
	m := make(Fields, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}
