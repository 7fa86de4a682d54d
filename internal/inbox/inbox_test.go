package inbox

import "testing"

func TestNewMessage(t *testing.T) {
	t.Parallel()
	m := NewMessage("hello", []string{" Rainbow ", "rainbow", ""}, false)
	if m.ID == "" {
		t.Fatal("ID is empty")
	}
	if len(m.Effects) != 1 || !m.HasEffect(EffectRainbow) {
		t.Fatalf("Effects = %v, want [rainbow]", m.Effects)
	}
	if m.ReceivedAt.IsZero() {
		t.Fatal("ReceivedAt is zero")
	}
	if other := NewMessage("hello", nil, false); other.ID == m.ID {
		t.Fatal("message IDs must be unique")
	}
}

func TestTakeAllMarksReadAndEmpties(t *testing.T) {
	t.Parallel()
	b := New(0)
	b.Add(NewMessage("one", nil, false))
	b.Add(NewMessage("two", nil, false))

	got := b.TakeAll()
	if len(got) != 2 || got[0].Text != "one" || got[1].Text != "two" {
		t.Fatalf("TakeAll = %v, want [one two]", got)
	}
	for _, m := range got {
		if !m.Read {
			t.Fatalf("message %q not marked read", m.Text)
		}
	}
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
}

func TestListIsACopy(t *testing.T) {
	t.Parallel()
	b := New(0)
	b.Add(NewMessage("one", nil, false))
	l := b.List()
	l[0].Text = "changed"
	if b.List()[0].Text != "one" {
		t.Fatal("List must return a copy")
	}
}

func TestBoundDropsOldest(t *testing.T) {
	t.Parallel()
	b := New(2)
	for _, s := range []string{"a", "b", "c"} {
		b.Add(NewMessage(s, nil, false))
	}
	l := b.List()
	if len(l) != 2 || l[0].Text != "b" || l[1].Text != "c" {
		t.Fatalf("List = %v, want [b c]", l)
	}

	b.SetMax(1)
	if l := b.List(); len(l) != 1 || l[0].Text != "c" {
		t.Fatalf("List after SetMax = %v, want [c]", l)
	}
	if n := b.Clear(); n != 1 {
		t.Fatalf("Clear = %d, want 1", n)
	}
}
