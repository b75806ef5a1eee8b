package store

import "testing"

func newObj(id string, created int64) *Object {
	return &Object{ID: id, Type: "widget", Created: created, Fields: map[string]any{}}
}

func TestGetAfterInsert(t *testing.T) {
	s := New("widgets")
	obj := newObj("w_1", 100)
	if _, err := s.Insert(obj); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok := s.Get("w_1")
	if !ok || got.ID != "w_1" {
		t.Fatalf("Get(w_1) = %v, %v", got, ok)
	}
}

func TestGetAfterDelete_NotFound(t *testing.T) {
	s := New("widgets")
	_, _ = s.Insert(newObj("w_1", 100))
	s.Delete("w_1")

	if _, ok := s.Get("w_1"); ok {
		t.Error("Get(w_1) after Delete should be not-found")
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	s := New("widgets")
	_, _ = s.Insert(newObj("w_1", 100))
	if _, err := s.Insert(newObj("w_1", 200)); err == nil {
		t.Error("Insert with duplicate id should error")
	}
}

func TestUpdate_RequiresExisting(t *testing.T) {
	s := New("widgets")
	if _, err := s.Update(newObj("missing", 100)); err == nil {
		t.Error("Update of nonexistent id should error")
	}
}

func TestGlobalFallback(t *testing.T) {
	global := New("tokens")
	_, _ = global.Insert(newObj("tok_visa", 1))

	local := New("tokens").WithGlobalFallback(global)

	got, ok := local.Get("tok_visa")
	if !ok || got.ID != "tok_visa" {
		t.Fatalf("expected fallback to surface global fixture, got %v, %v", got, ok)
	}

	// Local insert shadows nothing in global, and is visible without fallback.
	_, _ = local.Insert(newObj("tok_local", 2))
	if _, ok := global.Get("tok_local"); ok {
		t.Error("local insert must not leak into the global namespace")
	}
}

func TestClear(t *testing.T) {
	s := New("widgets")
	_, _ = s.Insert(newObj("w_1", 1))
	_, _ = s.Insert(newObj("w_2", 2))
	s.Clear()
	if s.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", s.Count())
	}
}

func seedN(s *Store, n int) {
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		_, _ = s.Insert(newObj(id, int64(i)))
	}
}

func TestList_DefaultLimit(t *testing.T) {
	s := New("widgets")
	seedN(s, 25)

	page := s.List(DefaultListOptions())
	if len(page.Data) != 10 {
		t.Errorf("len(Data) = %d, want 10", len(page.Data))
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}
}

func TestList_LimitZeroIsExplicit(t *testing.T) {
	s := New("widgets")
	seedN(s, 5)

	page := s.List(ListOptions{Limit: 0, HasLimit: true})
	if len(page.Data) != 0 {
		t.Errorf("len(Data) = %d, want 0 for explicit limit=0", len(page.Data))
	}
}

func TestList_LimitAbove100Clamped(t *testing.T) {
	s := New("widgets")
	seedN(s, 150)

	page := s.List(ListOptions{Limit: 101, HasLimit: true})
	if len(page.Data) != 100 {
		t.Errorf("len(Data) = %d, want 100 (limit 101 clamped)", len(page.Data))
	}
}

func TestList_SortedCreatedDescIDAsc(t *testing.T) {
	s := New("widgets")
	_, _ = s.Insert(newObj("b", 100))
	_, _ = s.Insert(newObj("a", 100))
	_, _ = s.Insert(newObj("c", 50))

	page := s.List(ListOptions{Limit: 10, HasLimit: true})
	wantOrder := []string{"a", "b", "c"}
	for i, id := range wantOrder {
		if page.Data[i].ID != id {
			t.Errorf("Data[%d].ID = %q, want %q", i, page.Data[i].ID, id)
		}
	}
}

func TestList_CursorRoundTrip(t *testing.T) {
	s := New("widgets")
	// 25 items with ascending id order when sorted by Created desc.
	for i := 0; i < 25; i++ {
		_, _ = s.Insert(newObj(string(rune('a'+i)), int64(100-i)))
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page := s.List(ListOptions{Limit: 10, HasLimit: true, StartingAfter: cursor})
		for _, o := range page.Data {
			if seen[o.ID] {
				t.Fatalf("duplicate id %q across pages", o.ID)
			}
			seen[o.ID] = true
		}
		pages++
		if !page.HasMore {
			break
		}
		cursor = page.Data[len(page.Data)-1].ID
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
	}

	if len(seen) != 25 {
		t.Errorf("covered %d items, want 25", len(seen))
	}
}

func TestList_EndingBeforeTakesPrecedence(t *testing.T) {
	s := New("widgets")
	for i := 0; i < 5; i++ {
		_, _ = s.Insert(newObj(string(rune('a'+i)), int64(100-i)))
	}

	page := s.List(ListOptions{Limit: 10, HasLimit: true, StartingAfter: "a", EndingBefore: "c"})
	for _, o := range page.Data {
		if o.ID == "c" {
			t.Error("EndingBefore id must be excluded")
		}
	}
}

func TestList_Filter(t *testing.T) {
	s := New("widgets")
	o1 := newObj("w_1", 1)
	o1.Fields["customer"] = "cus_1"
	o2 := newObj("w_2", 2)
	o2.Fields["customer"] = "cus_2"
	_, _ = s.Insert(o1)
	_, _ = s.Insert(o2)

	page := s.List(ListOptions{Limit: 10, HasLimit: true, Filter: EqualsFilter("customer", "cus_1")})
	if len(page.Data) != 1 || page.Data[0].ID != "w_1" {
		t.Errorf("filtered List = %+v, want only w_1", page.Data)
	}
}

func TestCompileFilter(t *testing.T) {
	f, err := CompileFilter(`customer == "cus_1"`)
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}

	o := newObj("w_1", 1)
	o.Fields["customer"] = "cus_1"
	if !f(o) {
		t.Error("compiled filter should match")
	}

	o2 := newObj("w_2", 2)
	o2.Fields["customer"] = "cus_2"
	if f(o2) {
		t.Error("compiled filter should not match cus_2")
	}
}

func TestObjectToJSON_FieldsMergedWithSystemAttrs(t *testing.T) {
	o := NewObject("cus_1", "customer", 1000)
	o.Fields["email"] = "a@b.com"

	j := o.ToJSON()
	if j["id"] != "cus_1" || j["object"] != "customer" || j["created"] != int64(1000) {
		t.Errorf("ToJSON system fields wrong: %+v", j)
	}
	if j["email"] != "a@b.com" {
		t.Errorf("ToJSON missing field: %+v", j)
	}
}

func TestObjectClone_Independent(t *testing.T) {
	o := NewObject("cus_1", "customer", 1000)
	o.Fields["email"] = "a@b.com"

	clone := o.Clone()
	clone.Fields["email"] = "changed@b.com"

	if o.Fields["email"] != "a@b.com" {
		t.Error("mutating clone's Fields affected the original")
	}
}
