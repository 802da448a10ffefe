package entities

import (
	"errors"
	"testing"
)

func TestChannelBindingValidate(t *testing.T) {
	cases := []struct {
		b  ChannelBinding
		ok bool
	}{
		{ChannelBinding{Sensor: "s", Control: "c", Alert: "a"}, true},
		{ChannelBinding{Sensor: "s", Control: "c", Alert: "s"}, false},
		{ChannelBinding{Sensor: "s", Control: " s ", Alert: "a"}, false},
		{ChannelBinding{Sensor: "s", Control: "S", Alert: "a"}, true},
		{ChannelBinding{Sensor: "s", Control: "", Alert: "a"}, false},
	}
	for _, c := range cases {
		err := c.b.Validate()
		if c.ok && err != nil {
			t.Errorf("%+v: unexpected %v", c.b, err)
		}
		if !c.ok && !errors.Is(err, ErrDuplicateChannel) {
			t.Errorf("%+v: expected ErrDuplicateChannel, got %v", c.b, err)
		}
	}
}

func TestChannelBindingAccepts(t *testing.T) {
	b := ChannelBinding{Sensor: "home/sensors", Control: "home/control", Alert: "home/alerts"}
	if got := b.Accepts("home/control"); len(got) != 2 || got[0] != TypeControlCommand || got[1] != TypeStateUpdate {
		t.Fatalf("control accepts %v", got)
	}
	if got := b.Accepts("home/alerts"); len(got) != 1 || got[0] != TypeAlert {
		t.Fatalf("alert accepts %v", got)
	}
	if b.Accepts("elsewhere") != nil {
		t.Fatal("unbound channel must accept nothing")
	}
	if ch := b.Channels(); ch[0] != "home/sensors" || ch[2] != "home/alerts" {
		t.Fatalf("channels %v", ch)
	}
}
