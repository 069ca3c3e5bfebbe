// Package errors provides coded, actionable errors for the byteflow CLI.
//
// Each error has a code that maps to a category, a short message, a
// detailed explanation and usually a hint:
//   - BF1xx config: byteflow.json and environment problems
//   - BF2xx codec: malformed frames and unregistered packet types
//   - BF3xx connection: dial and handshake failures
//   - BF4xx server: listener, cache and storage failures
//
// Library errors from the pkg/ packages are mapped onto codes with Classify.
//
// # Usage
//
//	err := errors.New("BF100").
//	    WithOffset("byteflow.json", data, syntaxErr.Offset).
//	    Wrap(syntaxErr)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR BF100: Invalid byteflow.json
//	//
//	//   byteflow.json:3:5
//	//
//	//        2 │   "server": {
//	//   →    3 │     addr: ":5100"
//	//          │     ^
//	//        4 │   }
//	//
//	//   The byteflow.json configuration file is malformed.
//	//
//	//   Cause: invalid character 'a' looking for beginning of object key string
//	//
//	//   Hint: Check the file for trailing commas and unquoted keys.
package errors
