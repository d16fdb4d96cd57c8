package natsclient

import (
	"errors"
	"testing"
)

func TestPublisher_NotConnected(t *testing.T) {
	p := &Publisher{}
	if err := p.Publish("sentinel.audit", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() = %v, ожидали ErrNotConnected", err)
	}
	if status, _ := p.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() = %q, ожидали fail", status)
	}
	p.Close()
}
