package app

import "testing"

func TestResolveBindAddr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		listenAddr string
		flagHost   string
		flagPort   int
		wantHost   string
		wantPort   int
		wantErr    bool
	}{
		{name: "config only", listenAddr: ":8080", wantHost: "0.0.0.0", wantPort: 8080},
		{name: "config with host", listenAddr: "127.0.0.1:9090", wantHost: "127.0.0.1", wantPort: 9090},
		{name: "flags win", listenAddr: ":8080", flagHost: "10.0.0.1", flagPort: 9000, wantHost: "10.0.0.1", wantPort: 9000},
		{name: "port flag only", listenAddr: "127.0.0.1:8080", flagPort: 9000, wantHost: "127.0.0.1", wantPort: 9000},
		{name: "bad address", listenAddr: "no-port", wantErr: true},
		{name: "bad port", listenAddr: ":http", wantErr: true},
		{name: "out of range", listenAddr: ":8080", flagPort: 70000, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			host, port, err := resolveBindAddr(tc.listenAddr, tc.flagHost, tc.flagPort)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %s:%d", host, port)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tc.wantHost || port != tc.wantPort {
				t.Fatalf("expected %s:%d, got %s:%d", tc.wantHost, tc.wantPort, host, port)
			}
		})
	}
}
