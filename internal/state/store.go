package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rowjay/tzwindow/internal/compress"
	"github.com/rowjay/tzwindow/internal/config"
	"github.com/rowjay/tzwindow/internal/cryptoutil"
	"github.com/rowjay/tzwindow/internal/util"
)

const snapshotKind = "snapshots"

// ErrNoSnapshot is returned by Latest when nothing has been saved yet.
var ErrNoSnapshot = errors.New("state: no snapshot found")

// Store writes and reads snapshots through the compression and encryption chain.
type Store struct {
	Backend     Storage
	Prefix      string
	Compression string
	key         []byte
	KeepLast    int
}

// NewStore wraps backend with the options from cfg.
func NewStore(backend Storage, cfg config.StateConfig) (*Store, error) {
	s := &Store{Backend: backend, Prefix: cfg.Prefix, Compression: cfg.Compression, KeepLast: cfg.KeepLast}
	if _, err := compress.WrapWriter(cfg.Compression, io.Discard); err != nil {
		return nil, err
	}
	if cfg.Encryption {
		if cfg.EncryptionKey == "" {
			return nil, fmt.Errorf("state: encryption is enabled but encryption_key is empty")
		}
		key, err := cryptoutil.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s, nil
}

// Open builds the configured backend and its Store.
func Open(cfg config.StateConfig) (*Store, error) {
	backend, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(backend, cfg)
}

func (s *Store) extension() string {
	ext := "json" + compress.Extension(s.Compression)
	if s.key != nil {
		ext += ".enc"
	}
	return ext
}

// Save writes snap and prunes old snapshots. It returns the object key.
func (s *Store) Save(ctx context.Context, snap Snapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}

	key := util.BuildObjectKey(s.Prefix, snapshotKind, snap.TakenAt, s.extension())
	buf := &bytes.Buffer{}
	writer := io.Writer(buf)
	closers := []io.Closer{}
	if s.key != nil {
		encWriter, err := cryptoutil.EncryptWriter(writer, s.key, key)
		if err != nil {
			return "", err
		}
		writer = encWriter
		closers = append(closers, encWriter)
	}
	compWriter, err := compress.WrapWriter(s.Compression, writer)
	if err != nil {
		return "", err
	}
	closers = append(closers, compWriter)
	if _, err := compWriter.Write(payload); err != nil {
		return "", err
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return "", err
		}
	}

	meta := map[string]string{"tzw-snapshot": "true", "tzw-compression": s.Compression}
	if err := s.Backend.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), meta); err != nil {
		return "", err
	}
	if err := s.prune(ctx); err != nil {
		return key, fmt.Errorf("state: prune: %w", err)
	}
	return key, nil
}

// Latest reads back the newest snapshot.
func (s *Store) Latest(ctx context.Context) (Snapshot, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if len(keys) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return s.Read(ctx, keys[0])
}

// Read decodes the snapshot stored under key, using its extension to undo
// compression and encryption.
func (s *Store) Read(ctx context.Context, key string) (Snapshot, error) {
	reader, err := s.Backend.Get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	defer reader.Close()

	payload := io.Reader(reader)
	name := key
	if strings.HasSuffix(name, ".enc") {
		if s.key == nil {
			return Snapshot{}, fmt.Errorf("state: %s is encrypted and no key is configured", key)
		}
		payload, err = cryptoutil.DecryptReader(payload, s.key, key)
		if err != nil {
			return Snapshot{}, err
		}
		name = strings.TrimSuffix(name, ".enc")
	}
	compReader, err := compress.WrapReader(compress.FromName(name), payload)
	if err != nil {
		return Snapshot{}, err
	}
	defer compReader.Close()

	var snap Snapshot
	if err := json.NewDecoder(compReader).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return snap, nil
}

// keys lists snapshot keys, newest first.
func (s *Store) keys(ctx context.Context) ([]string, error) {
	objects, err := s.Backend.List(ctx, util.BuildPrefix(s.Prefix, snapshotKind))
	if err != nil {
		return nil, err
	}
	type stamped struct {
		key  string
		when int64
	}
	found := []stamped{}
	for _, obj := range objects {
		when, ok := util.StampOf(obj.Key)
		if !ok {
			continue
		}
		found = append(found, stamped{obj.Key, when.UnixNano()})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].when != found[j].when {
			return found[i].when > found[j].when
		}
		return found[i].key > found[j].key
	})
	keys := make([]string, len(found))
	for i, f := range found {
		keys[i] = f.key
	}
	return keys, nil
}

func (s *Store) prune(ctx context.Context) error {
	if s.KeepLast <= 0 {
		return nil
	}
	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys[min(s.KeepLast, len(keys)):] {
		if err := s.Backend.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
