package storage

import "testing"

func TestNewStore(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"", false},
		{"memory", false},
		{"sqlite", false},
		{"unknown", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			store, err := NewStore(tt.kind, "test.db")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected unsupported store error")
				}
				return
			}
			if err != nil || store == nil {
				t.Fatalf("new store: %v", err)
			}
		})
	}
}
