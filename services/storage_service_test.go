package services

import (
	"crypto/md5"
	"encoding/hex"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"research-board-platform/internal/config"
	"research-board-platform/models"
)

func newTestStorage(t *testing.T) *StorageService {
	t.Helper()
	return NewStorageService(&config.Config{
		FileStorageDir: t.TempDir(),
		MaxFileSize:    1 << 20,
		AllowedTypes:   []string{"application/pdf", "audio/mpeg"},
	})
}

func uploadFixture(t *testing.T, name string, content []byte, contentType string) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.bin")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })

	header := &multipart.FileHeader{
		Filename: name,
		Size:     int64(len(content)),
		Header:   textproto.MIMEHeader{},
	}
	if contentType != "" {
		header.Header.Set("Content-Type", contentType)
	}
	return f, header
}

func TestValidateUpload(t *testing.T) {
	ss := newTestStorage(t)

	cases := []struct {
		name        string
		filename    string
		size        int64
		contentType string
		kind        models.SourceKind
		wantErr     bool
	}{
		{"pdf ok", "paper.pdf", 100, "application/pdf", models.SourceDocument, false},
		{"markdown ok without content type", "notes.md", 100, "", models.SourceDocument, false},
		{"audio ok", "talk.mp3", 100, "audio/mpeg", models.SourceMedia, false},
		{"wrong kind", "paper.pdf", 100, "application/pdf", models.SourceVideo, true},
		{"bad document ext", "binary.exe", 100, "", models.SourceDocument, true},
		{"bad media ext", "notes.txt", 100, "", models.SourceMedia, true},
		{"too large", "paper.pdf", 2 << 20, "application/pdf", models.SourceDocument, true},
		{"empty", "paper.pdf", 0, "application/pdf", models.SourceDocument, true},
		{"traversal filename", "../../etc/passwd.pdf", 100, "application/pdf", models.SourceDocument, true},
		{"disallowed type", "talk.mp4", 100, "video/x-flv", models.SourceMedia, true},
	}

	for _, c := range cases {
		header := &multipart.FileHeader{Filename: c.filename, Size: c.size, Header: textproto.MIMEHeader{}}
		if c.contentType != "" {
			header.Header.Set("Content-Type", c.contentType)
		}
		err := ss.ValidateUpload(header, c.kind)
		if (err != nil) != c.wantErr {
			t.Errorf("%s: ValidateUpload err = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestStoreWritesFileAndHash(t *testing.T) {
	ss := newTestStorage(t)

	content := []byte("%PDF-1.4\nsome pdf body bytes")
	file, header := uploadFixture(t, "my paper.pdf", content, "application/pdf")

	stored, err := ss.Store(file, header, "board1")
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}

	onDisk, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(onDisk) != string(content) {
		t.Error("stored content differs from upload")
	}

	sum := md5.Sum(content)
	if stored.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("unexpected hash %q", stored.Hash)
	}
	if stored.Size != int64(len(content)) {
		t.Errorf("unexpected size %d", stored.Size)
	}
	if !strings.Contains(stored.Path, "board1") {
		t.Errorf("expected board-scoped path, got %q", stored.Path)
	}
	if strings.Contains(stored.SecureName, " ") {
		t.Errorf("expected spaces replaced in %q", stored.SecureName)
	}
	if !strings.HasSuffix(stored.SecureName, ".pdf") {
		t.Errorf("expected extension preserved in %q", stored.SecureName)
	}
}

func TestStoreRejectsMismatchedMagicBytes(t *testing.T) {
	ss := newTestStorage(t)

	file, header := uploadFixture(t, "fake.pdf", []byte("<html>not a pdf</html>"), "application/pdf")
	if _, err := ss.Store(file, header, "board1"); err == nil {
		t.Fatal("expected magic byte validation to fail")
	}

	// The rejected upload must not leave a file behind
	entries, err := os.ReadDir(filepath.Join(ss.uploadDir, "board1"))
	if err == nil && len(entries) > 0 {
		t.Errorf("rejected upload left %d files behind", len(entries))
	}
}

func TestStoreAcceptsDocxZipHeader(t *testing.T) {
	ss := newTestStorage(t)

	content := append([]byte{0x50, 0x4B, 0x03, 0x04}, []byte("zip payload")...)
	file, header := uploadFixture(t, "doc.docx", content, "")
	if _, err := ss.Store(file, header, "board1"); err != nil {
		t.Fatalf("Store error: %v", err)
	}
}

func TestGenerateSecureFilename(t *testing.T) {
	a := generateSecureFilename("My Paper.PDF")
	b := generateSecureFilename("My Paper.PDF")
	if a == b {
		t.Error("expected unique names for repeated uploads")
	}
	if !strings.HasSuffix(a, ".pdf") {
		t.Errorf("expected lowercased extension, got %q", a)
	}
	if strings.Contains(a, " ") {
		t.Errorf("expected no spaces, got %q", a)
	}
	if !strings.Contains(a, "My_Paper") {
		t.Errorf("expected recognizable original name, got %q", a)
	}
}
