// Package cookie implements the encoded cookie store backing refresh token
// persistence. Values are base64-encoded at rest so raw tokens never appear in
// casual network inspection of the cookie header alone.
package cookie

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
	"time"
)

// base64Pattern matches a well-formed standard-alphabet base64 string.
// Decoding is attempted only for values that match, so malformed or foreign
// cookies pass through unchanged instead of failing request handling.
var base64Pattern = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*([A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{2}==)?$`)

// Attributes are the serialization attributes applied when writing a cookie.
// MaxAge and Expires are mutually exclusive; Set never emits both.
type Attributes struct {
	Path     string
	MaxAge   int
	Expires  time.Time
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// Jar gives read/write access to the cookies of a single request/response
// pair. The Cookie header is parsed once at construction; writes update both
// the response and the parsed view so reads observe them within the same
// request.
type Jar struct {
	w      http.ResponseWriter
	values map[string]string
}

// NewJar parses the request's cookies into a new Jar. The writer may be nil
// for read-only use.
func NewJar(r *http.Request, w http.ResponseWriter) *Jar {
	values := make(map[string]string)
	if r != nil {
		for _, c := range r.Cookies() {
			values[c.Name] = c.Value
		}
	}
	return &Jar{w: w, values: values}
}

// Get returns the named cookie's value, base64-decoded. A value that is not
// valid base64 is returned as-is.
func (j *Jar) Get(key string) (string, bool) {
	value, ok := j.values[key]
	if !ok {
		return "", false
	}
	return decode(value), true
}

// GetRaw returns the named cookie's value without decoding.
func (j *Jar) GetRaw(key string) (string, bool) {
	value, ok := j.values[key]
	return value, ok
}

// GetJSON decodes the named cookie and unmarshals its JSON payload into v.
func (j *Jar) GetJSON(key string, v any) (bool, error) {
	value, ok := j.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return true, err
	}
	return true, nil
}

// Set writes the cookie base64-encoded with the given attributes.
func (j *Jar) Set(key, value string, attrs Attributes) {
	j.write(key, base64.StdEncoding.EncodeToString([]byte(value)), attrs)
}

// SetRaw writes the cookie without encoding.
func (j *Jar) SetRaw(key, value string, attrs Attributes) {
	j.write(key, value, attrs)
}

// SetJSON marshals v to JSON and writes it base64-encoded.
func (j *Jar) SetJSON(key string, v any, attrs Attributes) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	j.Set(key, string(data), attrs)
	return nil
}

// Remove deletes the cookie by emitting an already-expired Set-Cookie header.
// Clearing the parsed view alone would leave the cookie on the client.
func (j *Jar) Remove(key string) {
	delete(j.values, key)

	if j.w == nil {
		return
	}
	http.SetCookie(j.w, &http.Cookie{
		Name:    key,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0).UTC(),
	})
}

func (j *Jar) write(key, encoded string, attrs Attributes) {
	j.values[key] = encoded

	if j.w == nil {
		return
	}

	c := &http.Cookie{
		Name:     key,
		Value:    encoded,
		Path:     attrs.Path,
		Secure:   attrs.Secure,
		HttpOnly: attrs.HttpOnly,
		SameSite: attrs.SameSite,
	}
	// An explicit expiration timestamp takes precedence over MaxAge
	if !attrs.Expires.IsZero() {
		c.Expires = attrs.Expires
	} else {
		c.MaxAge = attrs.MaxAge
	}
	http.SetCookie(j.w, c)
}

func decode(value string) string {
	if value == "" || !base64Pattern.MatchString(value) {
		return value
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return value
	}
	return string(decoded)
}
