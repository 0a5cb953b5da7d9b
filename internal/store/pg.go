package store

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/riffluv/ito-sub004/internal/game"
)

const notifyChannel = "room_changes"

// PG stores room and player documents as JSONB rows. Transactions lock the
// room row, the per-room command lock rides on Postgres advisory locks, and
// the change feed rides on LISTEN/NOTIFY.
type PG struct {
	Pool *pgxpool.Pool
}

func NewPG(ctx context.Context, dsn string) (*PG, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PG{Pool: pool}, nil
}

func (s *PG) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *PG) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

// EnsureSchema creates the document tables if they do not exist yet.
func (s *PG) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rooms (
	id text PRIMARY KEY,
	doc jsonb NOT NULL,
	status_version bigint NOT NULL DEFAULT 0,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS room_players (
	room_id text NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	uid text NOT NULL,
	doc jsonb NOT NULL,
	joined_at bigint NOT NULL,
	PRIMARY KEY (room_id, uid)
);
CREATE TABLE IF NOT EXISTS room_commands (
	room_id text NOT NULL,
	request_id text NOT NULL,
	doc jsonb NOT NULL,
	applied_at bigint NOT NULL,
	PRIMARY KEY (room_id, request_id)
);`)
	return err
}

func (s *PG) CreateRoom(ctx context.Context, room *game.Room, host game.Player) error {
	roomDoc, err := json.Marshal(room)
	if err != nil {
		return err
	}
	hostDoc, err := json.Marshal(host)
	if err != nil {
		return err
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return classifyPGErr(err)
	}
	defer tx.Rollback(ctx)
	ct, err := tx.Exec(ctx,
		`INSERT INTO rooms (id, doc, status_version) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		room.ID, roomDoc, room.StatusVersion)
	if err != nil {
		return classifyPGErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO room_players (room_id, uid, doc, joined_at) VALUES ($1, $2, $3, $4)`,
		room.ID, host.UID, hostDoc, host.JoinedAt); err != nil {
		return classifyPGErr(err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, room.ID); err != nil {
		return classifyPGErr(err)
	}
	return classifyPGErr(tx.Commit(ctx))
}

func (s *PG) GetRoom(ctx context.Context, roomID string) (*game.Room, error) {
	var doc []byte
	err := s.Pool.QueryRow(ctx, `SELECT doc FROM rooms WHERE id = $1`, roomID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPGErr(err)
	}
	var room game.Room
	if err := json.Unmarshal(doc, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *PG) ListPlayers(ctx context.Context, roomID string) ([]game.Player, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT doc FROM room_players WHERE room_id = $1 ORDER BY joined_at, uid`, roomID)
	if err != nil {
		return nil, classifyPGErr(err)
	}
	defer rows.Close()
	return scanPlayers(rows)
}

func (s *PG) GetPlayer(ctx context.Context, roomID, uid string) (*game.Player, error) {
	var doc []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT doc FROM room_players WHERE room_id = $1 AND uid = $2`, roomID, uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPGErr(err)
	}
	var p game.Player
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PG) GetCommand(ctx context.Context, roomID, requestID string) (*CommandRecord, error) {
	var doc []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT doc FROM room_commands WHERE room_id = $1 AND request_id = $2`, roomID, requestID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPGErr(err)
	}
	var rec CommandRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// TryLockRoom takes a session-scoped advisory lock on a dedicated pooled
// connection. ok=false means another command currently holds the room.
func (s *PG) TryLockRoom(ctx context.Context, roomID, holder string) (func(), bool, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, classifyPGErr(err)
	}
	key := lockKey(roomID)
	var got bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		conn.Release()
		return nil, false, classifyPGErr(err)
	}
	if !got {
		conn.Release()
		return nil, false, nil
	}
	log.Debug().Str("room_id", roomID).Str("holder", holder).Msg("room lock acquired")
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}
	return release, true, nil
}

type pgTx struct {
	ctx     context.Context
	tx      pgx.Tx
	roomID  string
	room    *game.Room
	players []game.Player

	setRoom    *game.Room
	putPlayers map[string]game.Player
	delPlayers map[string]struct{}
	putCmds    []CommandRecord
}

func (t *pgTx) Room() *game.Room        { return cloneRoom(t.room) }
func (t *pgTx) Players() []game.Player  { return append([]game.Player(nil), t.players...) }
func (t *pgTx) SetRoom(r *game.Room)    { t.setRoom = cloneRoom(r) }
func (t *pgTx) PutPlayer(p game.Player) { t.putPlayers[p.UID] = p }
func (t *pgTx) DeletePlayer(uid string) { t.delPlayers[uid] = struct{}{} }
func (t *pgTx) PutCommand(rec CommandRecord) {
	t.putCmds = append(t.putCmds, rec)
}

func (t *pgTx) Command(requestID string) (*CommandRecord, error) {
	var doc []byte
	err := t.tx.QueryRow(t.ctx,
		`SELECT doc FROM room_commands WHERE room_id = $1 AND request_id = $2`, t.roomID, requestID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPGErr(err)
	}
	var rec CommandRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PG) RunRoomTx(ctx context.Context, roomID string, fn func(RoomTx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classifyPGErr(err)
	}
	defer tx.Rollback(ctx)

	var roomDoc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&roomDoc)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return classifyPGErr(err)
	}
	var room game.Room
	if err := json.Unmarshal(roomDoc, &room); err != nil {
		return err
	}
	rows, err := tx.Query(ctx,
		`SELECT doc FROM room_players WHERE room_id = $1 ORDER BY joined_at, uid FOR UPDATE`, roomID)
	if err != nil {
		return classifyPGErr(err)
	}
	players, err := scanPlayers(rows)
	if err != nil {
		return err
	}

	t := &pgTx{
		ctx:        ctx,
		tx:         tx,
		roomID:     roomID,
		room:       &room,
		players:    players,
		putPlayers: map[string]game.Player{},
		delPlayers: map[string]struct{}{},
	}
	if err := fn(t); err != nil {
		return err
	}

	if t.setRoom != nil {
		doc, err := json.Marshal(t.setRoom)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rooms SET doc = $2, status_version = $3, updated_at = now() WHERE id = $1`,
			roomID, doc, t.setRoom.StatusVersion); err != nil {
			return classifyPGErr(err)
		}
	}
	for uid, p := range t.putPlayers {
		doc, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO room_players (room_id, uid, doc, joined_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id, uid) DO UPDATE SET doc = EXCLUDED.doc`,
			roomID, uid, doc, p.JoinedAt); err != nil {
			return classifyPGErr(err)
		}
	}
	for uid := range t.delPlayers {
		if _, err := tx.Exec(ctx,
			`DELETE FROM room_players WHERE room_id = $1 AND uid = $2`, roomID, uid); err != nil {
			return classifyPGErr(err)
		}
	}
	for _, rec := range t.putCmds {
		doc, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO room_commands (room_id, request_id, doc, applied_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id, request_id) DO NOTHING`,
			roomID, rec.RequestID, doc, rec.AppliedAt); err != nil {
			return classifyPGErr(err)
		}
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, roomID); err != nil {
		return classifyPGErr(err)
	}
	return classifyPGErr(tx.Commit(ctx))
}

// Watch listens for room notifications on a dedicated connection and
// re-reads the full snapshot on every change. Changes is left nil so
// consumers fall back to a full rebuild; the in-memory store is the one
// that delivers incremental diffs.
func (s *PG) Watch(ctx context.Context, roomID string) (<-chan WatchEvent, func(), error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, nil, err
	}
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, nil, classifyPGErr(err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, nil, classifyPGErr(err)
	}
	watchCtx, cancelCtx := context.WithCancel(ctx)
	ch := make(chan WatchEvent, 16)
	go func() {
		defer conn.Release()
		defer close(ch)
		if snap, err := s.readSnapshot(watchCtx, roomID); err == nil {
			ch <- WatchEvent{Snapshot: snap}
		} else if watchCtx.Err() == nil {
			ch <- WatchEvent{Err: err}
		}
		for {
			n, err := conn.Conn().WaitForNotification(watchCtx)
			if err != nil {
				if watchCtx.Err() == nil {
					ch <- WatchEvent{Err: classifyPGErr(err)}
				}
				return
			}
			if n.Payload != roomID {
				continue
			}
			snap, err := s.readSnapshot(watchCtx, roomID)
			if err != nil {
				if watchCtx.Err() == nil {
					ch <- WatchEvent{Err: err}
				}
				return
			}
			select {
			case ch <- WatchEvent{Snapshot: snap}:
			default:
				// Slow consumer: drop intermediate snapshots, the next
				// notification carries the latest state anyway.
			}
		}
	}()
	return ch, cancelCtx, nil
}

func (s *PG) readSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	players, err := s.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Room: room, Players: players, ServerTime: time.Now().UnixMilli()}, nil
}

func scanPlayers(rows pgx.Rows) ([]game.Player, error) {
	defer rows.Close()
	var out []game.Player
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, classifyPGErr(err)
		}
		var p game.Player
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, classifyPGErr(rows.Err())
}

func lockKey(roomID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(roomID))
	return int64(h.Sum64())
}

func classifyPGErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrUnavailable, err)
}
