package schema

import "encoding/json"

// StripIntent extracts arguments._intent from a tool call's raw JSON
// arguments, if present and a string, and returns the arguments with that
// key removed alongside the extracted intent. If _intent is absent or not a
// string, args is returned unchanged and intent is empty.
//
// When intent tracing is disabled for the run, callers should not call
// StripIntent at all — the transformer is the identity function on both
// directions per §4.3.
func StripIntent(args json.RawMessage) (stripped json.RawMessage, intent string, err error) {
	if len(args) == 0 {
		return args, "", nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		// Not a JSON object (e.g. a bare value); nothing to strip.
		return args, "", nil
	}
	raw, ok := obj[IntentProperty]
	if !ok {
		return args, "", nil
	}
	if err := json.Unmarshal(raw, &intent); err != nil {
		// _intent present but not a string: leave arguments untouched per
		// §4.3 ("if arguments._intent exists and is a string").
		return args, "", nil
	}
	delete(obj, IntentProperty)
	out, err := json.Marshal(obj)
	if err != nil {
		return args, "", err
	}
	return out, intent, nil
}
