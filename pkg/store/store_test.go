package store_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/fault"
	"github.com/loomcomputeco/loom/pkg/store"
)

const testDim = 4

func openTestStore() *store.Store {
	s, err := store.Open(store.Config{
		Path:        ":memory:",
		Dimensions:  testDim,
		AutoMigrate: true,
	}, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	return s
}

func insertEvent(s *store.Store, sessionID, role, text string, importance int, embedding []float32) int64 {
	tx, err := s.Begin(context.Background())
	Expect(err).NotTo(HaveOccurred())
	defer tx.Rollback()

	id, err := tx.InsertEvent(&store.Event{
		SessionID:  sessionID,
		Role:       role,
		Text:       text,
		Importance: importance,
		Embedding:  embedding,
	})
	Expect(err).NotTo(HaveOccurred())
	Expect(tx.Commit()).To(Succeed())
	return id
}

var _ = Describe("Open", func() {
	It("requires a path and dimensions", func() {
		_, err := store.Open(store.Config{Dimensions: testDim}, zap.NewNop())
		Expect(err).To(HaveOccurred())

		_, err = store.Open(store.Config{Path: ":memory:"}, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("opens and migrates an in-memory database", func() {
		s := openTestStore()
		Expect(s.Dim()).To(Equal(testDim))
		Expect(s.Close()).To(Succeed())
	})

	It("refuses a schema from the future", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "loom.db")

		s, err := store.Open(store.Config{Path: path, Dimensions: testDim, AutoMigrate: true}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.DB().Exec(`UPDATE schema_version SET version = 99`)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		_, err = store.Open(store.Config{Path: path, Dimensions: testDim, AutoMigrate: true}, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindSchemaIncompatible))
	})

	It("refuses a stale schema when auto-migration is off", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "loom.db")

		_, err := store.Open(store.Config{Path: path, Dimensions: testDim, AutoMigrate: false}, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindSchemaIncompatible))
	})
})

var _ = Describe("Sessions", func() {
	var s *store.Store
	ctx := context.Background()

	BeforeEach(func() { s = openTestStore() })
	AfterEach(func() { s.Close() })

	It("creates an active session and finds it", func() {
		created, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())

		active, err := s.ActiveSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).NotTo(BeNil())
		Expect(active.ID).To(Equal(created.ID))
		Expect(active.User).To(Equal("alice"))
	})

	It("keeps at most one session active", func() {
		first, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())
		second, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())

		active, err := s.ActiveSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(active.ID).To(Equal(second.ID))

		Expect(s.SetActiveSession(ctx, first.ID)).To(Succeed())
		active, err = s.ActiveSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(active.ID).To(Equal(first.ID))
	})

	It("returns nil when nothing is active", func() {
		active, err := s.ActiveSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeNil())
	})
})

var _ = Describe("Events", func() {
	var s *store.Store
	var sessionID string
	ctx := context.Background()

	BeforeEach(func() {
		s = openTestStore()
		session, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())
		sessionID = session.ID
	})
	AfterEach(func() { s.Close() })

	It("persists and lists events in order", func() {
		insertEvent(s, sessionID, "user", "first", 5, []float32{1, 0, 0, 0})
		insertEvent(s, sessionID, "assistant", "second", 5, []float32{0, 1, 0, 0})

		events, err := s.ListEvents(ctx, sessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].Text).To(Equal("first"))
		Expect(events[1].Text).To(Equal("second"))
		Expect(events[0].ID).To(BeNumerically("<", events[1].ID))
	})

	It("round-trips embeddings at the configured dimension", func() {
		want := []float32{0.1, -0.2, 0.3, -0.4}
		id := insertEvent(s, sessionID, "user", "vec", 5, want)

		events, err := s.GetEvents(ctx, []int64{id})
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Embedding).To(HaveLen(testDim))
		for i := range want {
			Expect(events[0].Embedding[i]).To(BeNumerically("~", want[i], 1e-6))
		}
	})

	It("round-trips keywords", func() {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		id, err := tx.InsertEvent(&store.Event{
			SessionID: sessionID,
			Role:      "user",
			Text:      "kw",
			Embedding: []float32{1, 0, 0, 0},
			Keywords:  []string{"alpha", "beta"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit()).To(Succeed())

		events, err := s.GetEvents(ctx, []int64{id})
		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Keywords).To(Equal([]string{"alpha", "beta"}))
	})

	It("rejects embeddings of the wrong dimension", func() {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer tx.Rollback()

		_, err = tx.InsertEvent(&store.Event{
			SessionID: sessionID,
			Role:      "user",
			Text:      "bad",
			Embedding: []float32{1, 0},
		})
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindCorruptEmbedding))
	})

	It("rejects empty text", func() {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer tx.Rollback()

		_, err = tx.InsertEvent(&store.Event{
			SessionID: sessionID,
			Role:      "user",
			Embedding: []float32{1, 0, 0, 0},
		})
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindInvalidInput))
	})

	It("clamps importance into [1, 10]", func() {
		id := insertEvent(s, sessionID, "user", "clamped", 99, []float32{1, 0, 0, 0})
		events, err := s.GetEvents(ctx, []int64{id})
		Expect(err).NotTo(HaveOccurred())
		Expect(events[0].Importance).To(Equal(10))
	})
})

var _ = Describe("Chunks", func() {
	var s *store.Store
	var sessionID string
	var eventIDs []int64
	ctx := context.Background()

	BeforeEach(func() {
		s = openTestStore()
		session, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())
		sessionID = session.ID

		eventIDs = nil
		for _, text := range []string{"one", "two", "three", "four"} {
			eventIDs = append(eventIDs, insertEvent(s, sessionID, "user", text, 5, []float32{1, 0, 0, 0}))
		}
	})
	AfterEach(func() { s.Close() })

	insertChunk := func(first, last int64) error {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer tx.Rollback()
		_, err = tx.InsertChunk(&store.Chunk{
			SessionID:    sessionID,
			Text:         "topic",
			Summary:      "a summary",
			FirstEventID: first,
			LastEventID:  last,
			Importance:   6,
			Embedding:    []float32{0, 0, 1, 0},
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	It("inserts a chunk and exposes it via ListChunks", func() {
		Expect(insertChunk(eventIDs[0], eventIDs[2])).To(Succeed())

		chunks, err := s.ListChunks(ctx, sessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(1))
		Expect(chunks[0].FirstEventID).To(Equal(eventIDs[0]))
		Expect(chunks[0].LastEventID).To(Equal(eventIDs[2]))
	})

	It("rejects overlapping ranges in the same session", func() {
		Expect(insertChunk(eventIDs[0], eventIDs[2])).To(Succeed())
		Expect(insertChunk(eventIDs[1], eventIDs[3])).NotTo(Succeed())
		Expect(insertChunk(eventIDs[3], eventIDs[3])).To(Succeed())
	})

	It("excludes covered events from UncoveredEvents", func() {
		Expect(insertChunk(eventIDs[0], eventIDs[1])).To(Succeed())

		uncovered, err := s.UncoveredEvents(ctx, sessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(uncovered).To(HaveLen(2))
		Expect(uncovered[0].Text).To(Equal("three"))
	})

	It("returns nil for a missing chunk", func() {
		c, err := s.GetChunk(ctx, 12345)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNil())
	})
})

var _ = Describe("Graph rows", func() {
	var s *store.Store
	var sessionID string
	ctx := context.Background()

	BeforeEach(func() {
		s = openTestStore()
		session, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())
		sessionID = session.ID
	})
	AfterEach(func() { s.Close() })

	upsertEntity := func(name, typ string) int64 {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer tx.Rollback()
		id, err := tx.UpsertEntity(sessionID, name, typ)
		Expect(err).NotTo(HaveOccurred())
		Expect(tx.Commit()).To(Succeed())
		return id
	}

	It("is idempotent in name with a growing mention count", func() {
		first := upsertEntity("Alice", "person")
		second := upsertEntity("Alice", "person")
		Expect(second).To(Equal(first))

		entity, err := s.GetEntity(ctx, sessionID, "Alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(entity.MentionCount).To(Equal(2))
	})

	It("fills in the type only when previously empty", func() {
		upsertEntity("Rust", "")
		upsertEntity("Rust", "language")
		upsertEntity("Rust", "crustacean")

		entity, err := s.GetEntity(ctx, sessionID, "Rust")
		Expect(err).NotTo(HaveOccurred())
		Expect(entity.Type).To(Equal("language"))
	})

	upsertEdge := func(source int64, relation string, target int64, delta float64, accumulate bool) {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer tx.Rollback()
		Expect(tx.UpsertEdge(source, relation, target, delta, 0.1, 2.0, accumulate)).To(Succeed())
		Expect(tx.Commit()).To(Succeed())
	}

	It("accumulates edge weight with clamping", func() {
		a := upsertEntity("Alice", "person")
		b := upsertEntity("Rust", "language")

		for i := 0; i < 5; i++ {
			upsertEdge(a, "likes", b, 0.6, true)
		}

		edge, err := s.GetEdge(ctx, a, "likes", b)
		Expect(err).NotTo(HaveOccurred())
		Expect(edge.Weight).To(BeNumerically("~", 2.0, 1e-9)) // clamp(5 * 0.6)
	})

	It("replaces weight when accumulation is off", func() {
		a := upsertEntity("Alice", "person")
		b := upsertEntity("Rust", "language")

		upsertEdge(a, "likes", b, 0.5, false)
		upsertEdge(a, "likes", b, 0.5, false)

		edge, err := s.GetEdge(ctx, a, "likes", b)
		Expect(err).NotTo(HaveOccurred())
		Expect(edge.Weight).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("keeps exactly one row per natural key", func() {
		a := upsertEntity("Alice", "person")
		b := upsertEntity("Rust", "language")
		upsertEdge(a, "likes", b, 0.5, true)
		upsertEdge(a, "likes", b, 0.5, true)

		edges, err := s.EdgesFrom(ctx, a, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges).To(HaveLen(1))
	})
})

var _ = Describe("Profile", func() {
	var s *store.Store
	var sessionID string
	ctx := context.Background()

	BeforeEach(func() {
		s = openTestStore()
		session, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())
		sessionID = session.ID
	})
	AfterEach(func() { s.Close() })

	upsert := func(key, value string, importance int) {
		tx, err := s.Begin(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer tx.Rollback()
		Expect(tx.UpsertProfile(sessionID, key, value, importance)).To(Succeed())
		Expect(tx.Commit()).To(Succeed())
	}

	It("applies last-writer-wins on value but never lowers importance", func() {
		upsert("language", "Rust", 8)
		upsert("language", "Go", 3)

		entries, err := s.Profile(ctx, sessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Value).To(Equal("Go"))
		Expect(entries[0].Importance).To(Equal(8))
	})
})

var _ = Describe("Search", func() {
	var s *store.Store
	var sessionID string
	ctx := context.Background()

	BeforeEach(func() {
		s = openTestStore()
		session, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())
		sessionID = session.ID

		insertEvent(s, sessionID, "user", "the user's name is Alice", 8, []float32{1, 0, 0, 0})
		insertEvent(s, sessionID, "assistant", "Rust is a systems language", 5, []float32{0, 1, 0, 0})
		insertEvent(s, sessionID, "user", "weather is sunny today", 3, []float32{0, 0, 1, 0})
	})
	AfterEach(func() { s.Close() })

	It("finds lexical matches with normalized scores", func() {
		candidates, err := s.SearchLexical(ctx, sessionID, "what is my name", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).NotTo(BeEmpty())
		Expect(candidates[0].Text).To(ContainSubstring("Alice"))
		for _, c := range candidates {
			Expect(c.Lexical).To(BeNumerically(">=", 0))
			Expect(c.Lexical).To(BeNumerically("<=", 1))
		}
	})

	It("returns nothing for empty query text", func() {
		candidates, err := s.SearchLexical(ctx, sessionID, "", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})

	It("ranks dense candidates by vector similarity", func() {
		candidates, err := s.SearchDense(ctx, sessionID, []float32{1, 0, 0, 0}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).NotTo(BeEmpty())
		Expect(candidates[0].Text).To(ContainSubstring("Alice"))
	})

	It("scopes results to the session", func() {
		other, err := s.CreateSession(ctx, "bob", false)
		Expect(err).NotTo(HaveOccurred())
		insertEvent(s, other.ID, "user", "completely different topic entirely", 5, []float32{1, 0, 0, 0})

		candidates, err := s.SearchDense(ctx, sessionID, []float32{1, 0, 0, 0}, 10)
		Expect(err).NotTo(HaveOccurred())
		for _, c := range candidates {
			Expect(c.SessionID).To(Equal(sessionID))
		}
	})
})

var _ = Describe("Embedding codec", func() {
	It("round-trips little-endian float32 blobs", func() {
		want := []float32{1.5, -2.25, 0, 3.75}
		blob := store.SerializeEmbedding(want)
		Expect(blob).To(HaveLen(len(want) * 4))

		got, err := store.DeserializeEmbedding(blob, len(want))
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(want))
	})

	It("fails length mismatches as CorruptEmbedding", func() {
		_, err := store.DeserializeEmbedding(make([]byte, 12), 4)
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindCorruptEmbedding))
	})
})

var _ = Describe("Ordering invariant", func() {
	It("orders events by (created_at, id) within a session", func() {
		s := openTestStore()
		defer s.Close()
		ctx := context.Background()

		session, err := s.CreateSession(ctx, "alice", true)
		Expect(err).NotTo(HaveOccurred())

		// Same-second inserts resolve by id.
		for i := 0; i < 3; i++ {
			insertEvent(s, session.ID, "user", "same instant", 5, []float32{1, 0, 0, 0})
		}
		events, err := s.ListEvents(ctx, session.ID)
		Expect(err).NotTo(HaveOccurred())
		for i := 1; i < len(events); i++ {
			Expect(events[i].ID).To(BeNumerically(">", events[i-1].ID))
			Expect(events[i].CreatedAt).To(BeTemporally(">=", events[i-1].CreatedAt))
		}
	})
})
