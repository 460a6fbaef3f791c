package apiclient

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"santrack/dashboard/internal/models"
)

// Page is a collection response: the envelope's data plus its optional
// pagination block, both passed through untouched.
type Page struct {
	Data       json.RawMessage `json:"data"`
	Pagination json.RawMessage `json:"pagination,omitempty"`
}

// unwrap returns the payload of a { success, data, pagination? } envelope, or
// the whole document when the service answered without one.
func unwrap(body []byte) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &APIError{Kind: ErrServer, Message: "malformed response body"}
	}

	doc := gjson.ParseBytes(body)
	if success := doc.Get("success"); success.Exists() && !success.Bool() {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = "request not successful"
		}
		return gjson.Result{}, &APIError{Kind: ErrServer, Message: msg}
	}
	if data := doc.Get("data"); data.Exists() {
		return data, nil
	}
	return doc, nil
}

func decodePage(body []byte) (Page, error) {
	data, err := unwrap(body)
	if err != nil {
		return Page{}, err
	}

	page := Page{Data: json.RawMessage("null")}
	if data.Exists() {
		page.Data = json.RawMessage(data.Raw)
	}
	if p := gjson.GetBytes(body, "pagination"); p.Exists() {
		page.Pagination = json.RawMessage(p.Raw)
	}
	return page, nil
}

// decodeSession accepts both { token, user } and the flat
// { ...userFields, token } shape older deployments return.
func decodeSession(data gjson.Result) (models.Session, error) {
	token := data.Get("token").String()
	if token == "" {
		token = data.Get("accessToken").String()
	}
	if token == "" {
		return models.Session{}, &APIError{Kind: ErrServer, Message: "auth response without token"}
	}

	user, err := decodeUser(data)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Token: token, User: user}, nil
}

// decodeUser accepts a bare user object or one nested under "user".
func decodeUser(data gjson.Result) (models.User, error) {
	src := data
	if nested := data.Get("user"); nested.IsObject() {
		src = nested
	}
	if !src.IsObject() {
		return models.User{}, &APIError{Kind: ErrServer, Message: "response without user"}
	}

	var user models.User
	if err := json.Unmarshal([]byte(src.Raw), &user); err != nil {
		return models.User{}, &APIError{Kind: ErrServer, Message: fmt.Sprintf("decode user: %v", err)}
	}
	if user.ID == "" {
		user.ID = src.Get("_id").String()
	}
	if !user.Role.Valid() {
		return models.User{}, &APIError{Kind: ErrServer, Message: fmt.Sprintf("user has unknown role %q", user.Role)}
	}
	return user, nil
}

// decodeFailure extracts the message and field errors of an error body.
// Field errors arrive either as an object keyed by field or as a list of
// { field|path|param, message|msg } entries.
func decodeFailure(body []byte) (string, map[string]string) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", nil
	}
	doc := gjson.ParseBytes(body)

	msg := doc.Get("message").String()
	if msg == "" {
		msg = doc.Get("error").String()
	}

	var fields map[string]string
	add := func(field, message string) {
		if field == "" || message == "" {
			return
		}
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[field] = message
	}

	errs := doc.Get("errors")
	switch {
	case errs.IsArray():
		errs.ForEach(func(_, entry gjson.Result) bool {
			field := firstString(entry, "field", "path", "param")
			message := firstString(entry, "message", "msg")
			add(field, message)
			return true
		})
	case errs.IsObject():
		errs.ForEach(func(key, value gjson.Result) bool {
			if value.IsArray() {
				add(key.String(), value.Get("0").String())
			} else {
				add(key.String(), value.String())
			}
			return true
		})
	}
	return msg, fields
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}
