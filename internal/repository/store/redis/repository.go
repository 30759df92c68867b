package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchtogether/server/internal/repository/store"
)

// repo keeps every document node under its own key, addressed by the
// slash-delimited path. A read at a path assembles the node together
// with all descendant keys into one JSON value, so callers can write
// leaves independently and still read whole subtrees.
type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
	}
}

func (r repo) docKey(path string) string {
	return "doc:" + path
}

func (r repo) descendantPattern(path string) string {
	return "doc:" + path + "/*"
}

func (r repo) descendantKeys(ctx context.Context, path string) ([]string, error) {
	var keys []string
	iter := r.rc.Scan(ctx, 0, r.descendantPattern(path), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan descendant keys: %w", err)
	}

	return keys, nil
}

// explodeAncestors pushes any ancestor of path that is stored as a
// single object key down into per-field child keys, so a mutation at
// path never leaves a stale nested copy inside an ancestor document.
// Ancestors are processed root first because exploding one level can
// materialize the next.
func (r repo) explodeAncestors(ctx context.Context, path string) error {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		ancestor := strings.Join(segments[:i], "/")

		raw, err := r.rc.Get(ctx, r.docKey(ancestor)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get ancestor doc: %w", err)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			// not an object, nothing to push down
			continue
		}

		pipe := r.rc.TxPipeline()
		for k, v := range fields {
			// an existing child key is newer than the exploded copy
			pipe.SetNX(ctx, r.docKey(ancestor+"/"+k), []byte(v), r.expireDuration)
		}
		pipe.Del(ctx, r.docKey(ancestor))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to explode ancestor doc: %w", err)
		}
	}

	return nil
}

// SetDoc replaces the subtree at path: every descendant key is dropped
// and the value becomes the node's sole content.
func (r repo) SetDoc(ctx context.Context, path string, value json.RawMessage) error {
	if err := r.explodeAncestors(ctx, path); err != nil {
		return err
	}

	keys, err := r.descendantKeys(ctx, path)
	if err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Set(ctx, r.docKey(path), []byte(value), r.expireDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set doc: %w", err)
	}

	return nil
}

// MergeDoc overlays fields onto the object stored at path. Fields not
// named keep their values, descendant keys are untouched. A missing or
// non-object node starts from an empty object.
func (r repo) MergeDoc(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	if err := r.explodeAncestors(ctx, path); err != nil {
		return err
	}

	doc := make(map[string]json.RawMessage)

	raw, err := r.rc.Get(ctx, r.docKey(path)).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &doc); err != nil {
			doc = make(map[string]json.RawMessage)
		}
	case err != redis.Nil:
		return fmt.Errorf("failed to get doc: %w", err)
	}

	for k, v := range fields {
		doc[k] = v
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal merged doc: %w", err)
	}

	if err := r.rc.Set(ctx, r.docKey(path), merged, r.expireDuration).Err(); err != nil {
		return fmt.Errorf("failed to set merged doc: %w", err)
	}

	return nil
}

// AppendChild stores value under path/key without touching siblings.
func (r repo) AppendChild(ctx context.Context, path, key string, value json.RawMessage) error {
	if err := r.explodeAncestors(ctx, path+"/"+key); err != nil {
		return err
	}

	if err := r.rc.Set(ctx, r.docKey(path+"/"+key), []byte(value), r.expireDuration).Err(); err != nil {
		return fmt.Errorf("failed to append child: %w", err)
	}

	return nil
}

// RemoveSubtree deletes the node and everything under it. Removing an
// absent path is not an error.
func (r repo) RemoveSubtree(ctx context.Context, path string) error {
	if err := r.explodeAncestors(ctx, path); err != nil {
		return err
	}

	keys, err := r.descendantKeys(ctx, path)
	if err != nil {
		return err
	}
	keys = append(keys, r.docKey(path))

	if err := r.rc.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove subtree: %w", err)
	}

	return nil
}

// GetSubtree assembles the node at path with all descendant keys
// overlaid on top of it. Returns store.ErrDocNotFound when neither the
// node nor any descendant exists. Every key touched has its expiry
// refreshed.
func (r repo) GetSubtree(ctx context.Context, path string) (json.RawMessage, error) {
	var base any
	baseExists := false

	raw, err := r.rc.Get(ctx, r.docKey(path)).Bytes()
	switch {
	case err == nil:
		baseExists = true
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, fmt.Errorf("failed to unmarshal doc: %w", err)
		}
		r.rc.Expire(ctx, r.docKey(path), r.expireDuration)
	case err != redis.Nil:
		return nil, fmt.Errorf("failed to get doc: %w", err)
	}

	keys, err := r.descendantKeys(ctx, path)
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		if !baseExists {
			return r.readFromAncestor(ctx, path)
		}

		assembled, err := json.Marshal(base)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal doc: %w", err)
		}

		return assembled, nil
	}

	tree, ok := base.(map[string]any)
	if !ok {
		tree = make(map[string]any)
	}

	prefix := r.docKey(path) + "/"
	for _, key := range keys {
		raw, err := r.rc.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get descendant doc: %w", err)
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal descendant doc: %w", err)
		}

		setNested(tree, strings.Split(strings.TrimPrefix(key, prefix), "/"), value)
		r.rc.Expire(ctx, key, r.expireDuration)
	}

	assembled, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subtree: %w", err)
	}

	return assembled, nil
}

// readFromAncestor resolves path inside the nearest ancestor stored as
// a whole document. Mutations explode such documents before writing
// below them, so the value of a path can live inside an ancestor only
// until the first write under it; reads still have to find it there.
func (r repo) readFromAncestor(ctx context.Context, path string) (json.RawMessage, error) {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 1; i-- {
		ancestor := strings.Join(segments[:i], "/")

		raw, err := r.rc.Get(ctx, r.docKey(ancestor)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get ancestor doc: %w", err)
		}
		r.rc.Expire(ctx, r.docKey(ancestor), r.expireDuration)

		value := json.RawMessage(raw)
		for _, segment := range segments[i:] {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(value, &fields); err != nil {
				return nil, store.ErrDocNotFound
			}

			child, ok := fields[segment]
			if !ok {
				return nil, store.ErrDocNotFound
			}
			value = child
		}

		return value, nil
	}

	return nil, store.ErrDocNotFound
}

// setNested places value at the nested position named by segments,
// materializing intermediate objects and merging onto any object an
// ancestor key already contributed.
func setNested(tree map[string]any, segments []string, value any) {
	for len(segments) > 1 {
		child, ok := tree[segments[0]].(map[string]any)
		if !ok {
			child = make(map[string]any)
			tree[segments[0]] = child
		}
		tree = child
		segments = segments[1:]
	}

	existing, existingOk := tree[segments[0]].(map[string]any)
	incoming, incomingOk := value.(map[string]any)
	if existingOk && incomingOk {
		mergeTrees(existing, incoming)
		return
	}

	tree[segments[0]] = value
}

func mergeTrees(dst, src map[string]any) {
	for k, v := range src {
		if dstChild, ok := dst[k].(map[string]any); ok {
			if srcChild, ok := v.(map[string]any); ok {
				mergeTrees(dstChild, srcChild)
				continue
			}
		}
		dst[k] = v
	}
}
