package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manenim/gcra-limiter/pkg/clock"
	"github.com/manenim/gcra-limiter/pkg/gcra"
	"github.com/manenim/gcra-limiter/pkg/nanos"
)

func ExampleMemoryLimiter() {
	q, err := Limit{Rate: 10, Period: time.Second, Burst: 10}.Quota()
	if err != nil {
		panic(err)
	}
	l, err := NewMemoryLimiter(q)
	if err != nil {
		panic(err)
	}

	id := Identity{Namespace: "user", Key: "user_123"}

	dec, err := l.Allow(context.Background(), id)
	if err != nil {
		panic(err)
	}

	fmt.Println(dec.Allow, dec.Remaining)
	// Output:
	// true 9
}

func ExampleNewDirect() {
	ctx := context.Background()
	clk := new(clock.FakeRelativeClock)

	d, err := NewDirect[nanos.Nanos](gcra.Must(gcra.PerSecond(2)), clk)
	if err != nil {
		panic(err)
	}

	for i := 0; i < 3; i++ {
		_, err := d.Check(ctx)
		var nu *gcra.NotUntil[nanos.Nanos]
		if errors.As(err, &nu) {
			fmt.Printf("cell %d: wait %v\n", i, nu.WaitTimeFrom(clk.Now()))
			continue
		}
		fmt.Printf("cell %d: admitted\n", i)
	}
	// Output:
	// cell 0: admitted
	// cell 1: admitted
	// cell 2: wait 500ms
}
