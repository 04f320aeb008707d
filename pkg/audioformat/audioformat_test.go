package audioformat

import "testing"

func TestForPath(t *testing.T) {
	testCases := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{path: "/music/a.flac", want: "FLAC", wantOK: true},
		{path: "/music/a.FLAC", want: "FLAC", wantOK: true},
		{path: "/music/a.fla", want: "FLAC", wantOK: true},
		{path: "/music/a.Mp3", want: "MP3", wantOK: true},
		{path: "/music/cover.jpg"},
		{path: "/music/README"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			f, ok := ForPath(tc.path)
			if ok != tc.wantOK || f.ShortName != tc.want {
				t.Errorf("ForPath(%q) = %v, %v; want %q, %v", tc.path, f, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestFormat_Extensions(t *testing.T) {
	exts := FLAC.Extensions()
	if len(exts) != 2 || exts[0] != ".flac" {
		t.Errorf("unexpected FLAC extensions: %v", exts)
	}
	if !FLAC.Lossless || MP3.Lossless {
		t.Error("expected FLAC lossless and MP3 lossy")
	}
	if MP3.SupportsExtension(".flac") {
		t.Error("MP3 must not support .flac")
	}
}
