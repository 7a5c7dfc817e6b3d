package user

import "github.com/ledgerid/core/evt"

// evtUniqueOps builds the add-username/add-email pair for AddHuman.
func evtUniqueOps(username, email string, caseInsensitive bool) []evt.UniqueOp {
	return []evt.UniqueOp{
		{Add: true, Type: uniqueUsername, Field: username, CaseInsensitive: caseInsensitive, ErrorMessage: "username already taken"},
		{Add: true, Type: uniqueEmail, Field: email, CaseInsensitive: caseInsensitive, ErrorMessage: "email already registered"},
	}
}

// releaseThenTake releases the old value of unique type typ and reserves
// the new one, both in the same push (§4.2's atomic re-reservation
// pattern used for changing an already-unique field).
func releaseThenTake(typ, oldValue, newValue string, caseInsensitive bool) []evt.UniqueOp {
	return []evt.UniqueOp{
		{Add: false, Type: typ, Field: oldValue, CaseInsensitive: caseInsensitive},
		{Add: true, Type: typ, Field: newValue, CaseInsensitive: caseInsensitive, ErrorMessage: "email already registered"},
	}
}

// releaseOnly frees both reservations a user holds, letting the username
// and email be reused by a future AddHuman.
func releaseOnly(username, email string) []evt.UniqueOp {
	return []evt.UniqueOp{
		{Add: false, Type: uniqueUsername, Field: username, CaseInsensitive: true},
		{Add: false, Type: uniqueEmail, Field: email, CaseInsensitive: true},
	}
}
