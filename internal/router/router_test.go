package router

import (
	"context"
	"errors"
	"testing"
)

type testMsg struct {
	route string
	valid bool
}

func (m testMsg) Route() string { return m.route }
func (m testMsg) Type() string  { return "test" }
func (m testMsg) ValidateBasic() error {
	if !m.valid {
		return errors.New("empty payload")
	}
	return nil
}

func TestSend(t *testing.T) {
	r := New()
	r.AddHandler("keyring", func(ctx context.Context, id string, msg Message) (interface{}, error) {
		if id == "" {
			t.Error("empty request id")
		}
		return "signed", nil
	})

	res, err := r.Send(context.Background(), testMsg{route: "keyring", valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != "signed" || res.ID == "" {
		t.Errorf("result = %+v", res)
	}

	_, err = r.Send(context.Background(), testMsg{route: "missing", valid: true})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}

	_, err = r.Send(context.Background(), testMsg{route: "keyring"})
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Module != "keyring" || rerr.Code != CodeInvalidMessage {
		t.Errorf("err = %v, want validation *Error", err)
	}
}

func TestHandlerError(t *testing.T) {
	r := New()
	r.AddHandler("keyring", func(context.Context, string, Message) (interface{}, error) {
		return nil, NewError("keyring", 4, "rejected by user")
	})
	_, err := r.Send(context.Background(), testMsg{route: "keyring", valid: true})
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Code != 4 {
		t.Errorf("err = %v", err)
	}
	if rerr.Error() != "module: keyring, code: 4, message: rejected by user" {
		t.Errorf("message = %s", rerr.Error())
	}
}
