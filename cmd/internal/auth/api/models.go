package authapi

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

const (
	resultSuccess = "success"
	resultFail    = "fail"
)

// formBool accepts a JSON boolean or a string; only "true" is true, which
// matches how the login form posts its checkbox.
type formBool bool

func (b *formBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = formBool(strings.EqualFold(strings.TrimSpace(s), "true"))
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = formBool(v)
	return nil
}

type loginRequest struct {
	Username   string   `json:"username" validate:"required"`
	Password   string   `json:"password" validate:"required"`
	RememberMe formBool `json:"remember_me"`
}

func (req *loginRequest) fromForm(v url.Values) {
	req.Username = v.Get("username")
	req.Password = v.Get("password")
	req.RememberMe = formBool(v.Get("remember_me") == "true")
}

type registerRequest struct {
	Username        string `json:"username" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// fromForm reads the registration form field names, falling back to the
// JSON names.
func (req *registerRequest) fromForm(v url.Values) {
	req.Username = firstValue(v, "reg-username", "username")
	req.Password = firstValue(v, "reg-password", "password")
	req.PasswordConfirm = firstValue(v, "reg-password-confirm", "password_confirm")
}

type checkUsernameRequest struct {
	Username string `json:"username" validate:"required"`
}

func (req *checkUsernameRequest) fromForm(v url.Values) {
	req.Username = v.Get("username")
}

func firstValue(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k); s != "" {
			return s
		}
	}
	return ""
}

// resultResponse is the body of every auth form endpoint.
type resultResponse struct {
	Result     string `json:"result"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message"`
	Terminated *int   `json:"terminated,omitempty"`
}

type sessionInfoResponse struct {
	Username     string    `json:"username"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address"`
}

type userInfoResponse struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}
