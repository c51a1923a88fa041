package ntt

import "testing"

func TestConfigExcluded(t *testing.T) {
	c := Config{IgnorePatterns: []string{"lost+found", "*.tmp", "System Volume Information"}}

	cases := []struct {
		path string
		want bool
	}{
		{"home/user/lost+found/foo", true},
		{"home/user/doc.tmp", true},
		{"System Volume Information/IndexerVolumeGuid", true},
		{"home/user/document.txt", false},
	}
	for _, c2 := range cases {
		if got := c.Excluded(c2.path); got != c2.want {
			t.Errorf("Excluded(%q) = %v, want %v", c2.path, got, c2.want)
		}
	}
}

func TestLoadConfigRequiresEnv(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	t.Setenv(envImageRoot, "")
	t.Setenv(envByHashRoot, "")
	t.Setenv(envArchiveRoot, "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() with no env set: want error, got nil")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(envDatabaseURL, "postgres://localhost/ntt")
	t.Setenv(envImageRoot, "/mnt/images")
	t.Setenv(envByHashRoot, "/archive/byhash")
	t.Setenv(envArchiveRoot, "/archive/tree")
	t.Setenv(envBatchSize, "")
	t.Setenv(envWorkerID, "")

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.BatchSize != defaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", c.BatchSize, defaultBatchSize)
	}
	if c.WorkerID == "" {
		t.Error("WorkerID should default to a non-empty host:pid value")
	}
}
