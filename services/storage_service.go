package services

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"research-board-platform/internal/config"
	"research-board-platform/models"
)

// StorageService stores uploaded source files under a per-board
// directory with hashed, collision-free names.
type StorageService struct {
	config    *config.Config
	uploadDir string
	tempDir   string
}

func NewStorageService(cfg *config.Config) *StorageService {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}

	uploadDir := filepath.Join(baseDir, "uploads")
	tempDir := filepath.Join(baseDir, "temp")

	os.MkdirAll(uploadDir, 0755)
	os.MkdirAll(tempDir, 0755)

	return &StorageService{
		config:    cfg,
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}
}

// StoredFile describes a successfully stored upload.
type StoredFile struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
	MimeType   string
}

// document extensions the extraction pipeline understands
var documentExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// media extensions the transcription pipeline understands
var mediaExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
	".mp4":  true,
	".webm": true,
	".mkv":  true,
	".mov":  true,
}

// ValidateUpload performs size, filename and type checks before any bytes
// are written to disk.
func (ss *StorageService) ValidateUpload(header *multipart.FileHeader, kind models.SourceKind) error {
	if header.Size > ss.config.MaxFileSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", header.Size, ss.config.MaxFileSize)
	}
	if header.Size == 0 {
		return fmt.Errorf("file is empty")
	}

	if err := validateFilename(header.Filename); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch kind {
	case models.SourceDocument:
		if !documentExtensions[ext] {
			return fmt.Errorf("unsupported document extension %q, expected pdf, docx, md or txt", ext)
		}
	case models.SourceMedia:
		if !mediaExtensions[ext] {
			return fmt.Errorf("unsupported media extension %q, expected an audio or video file", ext)
		}
	default:
		return fmt.Errorf("kind %q does not accept uploads", kind)
	}

	// Content-Type is advisory (browsers routinely mislabel markdown) but
	// an explicitly disallowed type is rejected.
	contentType := header.Header.Get("Content-Type")
	if contentType != "" && len(ss.config.AllowedTypes) > 0 {
		base := strings.TrimSpace(strings.Split(contentType, ";")[0])
		for _, allowed := range ss.config.AllowedTypes {
			if strings.EqualFold(base, strings.TrimSpace(allowed)) {
				return nil
			}
		}
		// Unlisted text/* and application/octet-stream pass on extension alone
		if base == "application/octet-stream" || strings.HasPrefix(base, "text/") {
			return nil
		}
		return fmt.Errorf("content type %q is not allowed", contentType)
	}

	return nil
}

// Store streams an upload to disk, hashing as it writes, then validates
// the magic bytes before moving the file into the board's directory.
func (ss *StorageService) Store(file multipart.File, header *multipart.FileHeader, boardID string) (*StoredFile, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	secureName := generateSecureFilename(header.Filename)

	boardDir := filepath.Join(ss.uploadDir, boardID)
	if err := os.MkdirAll(boardDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create board directory: %w", err)
	}
	filePath := filepath.Join(boardDir, secureName)

	// Write to a temp file first so a failed upload never leaves a partial
	// file at the final path.
	tempPath := filepath.Join(ss.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := md5.New()
	bytesWritten, err := io.Copy(io.MultiWriter(tempFile, hasher), file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if bytesWritten == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty")
	}

	if err := validateMagicBytes(tempPath, header.Filename); err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &StoredFile{
		Path:       filePath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		Size:       bytesWritten,
		MimeType:   header.Header.Get("Content-Type"),
	}, nil
}

// Cleanup removes a stored file, logging failures without returning them.
func (ss *StorageService) Cleanup(filePath string) {
	if filePath != "" {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Failed to cleanup file %s: %v\n", filePath, err)
		}
	}
}

// RemoveBoardFiles deletes every upload stored for a board.
func (ss *StorageService) RemoveBoardFiles(boardID string) error {
	if boardID == "" {
		return fmt.Errorf("board id is required")
	}
	return os.RemoveAll(filepath.Join(ss.uploadDir, boardID))
}

// TempDir returns the scratch directory for intermediate ingest files.
func (ss *StorageService) TempDir() string {
	return ss.tempDir
}

// validateFilename ensures filename is safe
func validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is required")
	}
	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters)")
	}

	dangerous := []string{"../", "..\\", "<", ">", ":", "\"", "|", "?", "*", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return fmt.Errorf("filename contains invalid or dangerous characters")
		}
	}
	return nil
}

// validateMagicBytes rejects files whose leading bytes contradict their
// extension. Formats without a reliable signature are accepted as-is.
func validateMagicBytes(filePath, originalName string) error {
	ext := strings.ToLower(filepath.Ext(originalName))

	var want []byte
	switch ext {
	case ".pdf":
		want = []byte("%PDF")
	case ".docx":
		// docx is a zip archive
		want = []byte{0x50, 0x4B}
	default:
		return nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(want))
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("file is too small to be a valid %s", strings.TrimPrefix(ext, "."))
	}
	if string(head) != string(want) {
		return fmt.Errorf("file content does not match the %s format", strings.TrimPrefix(ext, "."))
	}
	return nil
}

// generateSecureFilename creates a collision-free name that keeps a
// recognizable slice of the original.
func generateSecureFilename(originalName string) string {
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)
	randomPrefix := hex.EncodeToString(randomBytes)

	timestamp := time.Now().Format("20060102_150405")

	ext := filepath.Ext(originalName)
	baseName := strings.TrimSuffix(filepath.Base(originalName), ext)
	safeName := strings.ReplaceAll(baseName, " ", "_")
	safeName = strings.ReplaceAll(safeName, "..", "")
	if len(safeName) > 50 {
		safeName = safeName[:50]
	}

	return fmt.Sprintf("%s_%s_%s%s", timestamp, randomPrefix, safeName, strings.ToLower(ext))
}
