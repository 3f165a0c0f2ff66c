package forge

import (
	"testing"
)

func TestQuery_Map(t *testing.T) {
	type Comp1 struct{ a int }
	type Comp2 struct{ b float32 }
	type Comp3 struct{}

	ecs := MakeEcs()
	ecs.addEntity(Comp1{a: 1})                                 // comp1 only                       -- shouldn't match
	id2 := ecs.addEntity(Comp1{a: 2}, Comp2{b: 1.37})          // comp1 & comp2                    -- should match
	id3 := ecs.addEntity(Comp1{a: 3}, Comp2{b: 4.20}, Comp3{}) // comp1 & comp2 + something extra  -- should match
	ecs.addEntity(Comp1{a: 4}, Comp3{})                        // comp1 + something extra          -- shouldn't match
	ecs.addEntity(Comp2{b: 3.14})                              // comp2 only                       -- shouldn't match

	query := Query2[Comp1, Comp2]{ecs: &ecs}

	expectedEntityIds := []EntityId{id2, id3}
	expectedComponentsA := []Comp1{{a: 2}, {a: 3}}
	expectedComponentsB := []Comp2{{b: 1.37}, {b: 4.20}}
	numResults := 0

	query.Map(func(entityId EntityId, comp1 *Comp1, comp2 *Comp2) bool {
		if entityId != expectedEntityIds[numResults] {
			t.Errorf("Unexpected EntityId for row %v, expected %v got %v", numResults, expectedEntityIds[numResults], entityId)
		}
		if *comp1 != expectedComponentsA[numResults] {
			t.Errorf("Unexpected A for row %v, expected %v got %v", numResults, expectedComponentsA[numResults], *comp1)
		}
		if *comp2 != expectedComponentsB[numResults] {
			t.Errorf("Unexpected B for row %v, expected %v got %v", numResults, expectedComponentsB[numResults], *comp2)
		}

		numResults += 1
		return true
	})

	if 2 != numResults {
		t.Errorf("Unexpected number of results, got %v", numResults)
	}
}

func TestQuery_MapStopsOnFalse(t *testing.T) {
	type Comp struct{ a int }

	ecs := MakeEcs()
	ecs.addEntity(Comp{a: 1})
	ecs.addEntity(Comp{a: 2})
	ecs.addEntity(Comp{a: 3})

	query := Query1[Comp]{ecs: &ecs}

	numResults := 0
	query.Map(func(entityId EntityId, c *Comp) bool {
		numResults++
		return false
	})

	if numResults != 1 {
		t.Errorf("Expected iteration to stop after 1 row, got %v", numResults)
	}
}

func TestQuery_MapOptional(t *testing.T) {
	type Required struct{ a int }
	type Optional struct{ b int }

	ecs := MakeEcs()
	idPlain := ecs.addEntity(Required{a: 1})
	idBoth := ecs.addEntity(Required{a: 2}, Optional{b: 20})

	query := Query2[Required, Optional]{ecs: &ecs}

	got := map[EntityId]*Optional{}
	query.Map(func(entityId EntityId, r *Required, o *Optional) bool {
		got[entityId] = o
		return true
	}, Optional{})

	if len(got) != 2 {
		t.Fatalf("Expected both entities to match, got %v", len(got))
	}
	if got[idPlain] != nil {
		t.Errorf("Expected nil optional for entity without the component")
	}
	if got[idBoth] == nil || got[idBoth].b != 20 {
		t.Errorf("Expected optional b=20, got %v", got[idBoth])
	}
}
