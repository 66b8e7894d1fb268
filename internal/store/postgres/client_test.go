package postgres

import "testing"

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "db", Database: "ledger", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/ledger?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "ledger", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/ledger?sslmode=require",
		},
		{
			name: "escapes credentials",
			cfg:  ClientConfig{Host: "db", Database: "ledger", User: "u", Password: "p@ss/word"},
			want: "postgres://u:p%40ss%2Fword@db:5432/ledger?sslmode=disable",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DSN(tc.cfg); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMigrationNames_Ordered(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	want := []string{"001_ledger.sql", "002_audit_market.sql"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	for _, n := range names {
		data, err := migrationsFS.ReadFile("migrations/" + n)
		if err != nil || len(data) == 0 {
			t.Errorf("migration %s unreadable or empty: %v", n, err)
		}
	}
}
