package stats

import "testing"

func TestCounters(t *testing.T) {
	s := NewStore(10)
	s.Evaluated("chan-1", "bigkills")
	s.Evaluated("chan-1", "bigkills")
	s.Matched("chan-1", "bigkills")
	s.Delivered("chan-1", "bigkills")
	s.Failed("chan-1", "bigkills")

	fs, _, ok := s.Get("chan-1", "bigkills")
	if !ok {
		t.Fatalf("missing stats")
	}
	if fs.Evaluated != 2 || fs.Matched != 1 || fs.Delivered != 1 || fs.Failed != 1 {
		t.Fatalf("counters: %+v", fs)
	}
}

func TestEmptyKeysIgnored(t *testing.T) {
	s := NewStore(10)
	s.Evaluated("", "feed")
	s.Evaluated("chan-1", "")
	if len(s.All()) != 0 {
		t.Fatalf("blank keys must not create entries")
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	s := NewStore(2)
	s.Evaluated("chan-1", "a")
	s.Evaluated("chan-1", "b")
	s.Evaluated("chan-1", "c")

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}
	if _, _, ok := s.Get("chan-1", "a"); ok {
		t.Fatalf("oldest entry survived eviction")
	}
}

func TestAllSorted(t *testing.T) {
	s := NewStore(10)
	s.Matched("chan-2", "z")
	s.Matched("chan-1", "b")
	s.Matched("chan-1", "a")

	all := s.All()
	if all[0].DestinationID != "chan-1" || all[0].Feed != "a" || all[2].DestinationID != "chan-2" {
		t.Fatalf("order: %+v", all)
	}
}
