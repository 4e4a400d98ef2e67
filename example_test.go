package leanstore_test

import (
	"context"
	"fmt"

	"github.com/leanstore/leanstore.go"
	"github.com/leanstore/leanstore.go/internal/testenv"
	lsslog "github.com/leanstore/leanstore.go/pkg/logger/slog"
)

func ExampleObject_Save() {
	env := testenv.MustNew()
	defer env.Close()
	ctx := context.Background()

	post := env.Client.Object("Post")
	if err := post.SetAll(map[string]any{"title": "Hello", "tags": []any{"go"}}); err != nil {
		panic(err)
	}
	if err := post.Increment("views", 1); err != nil {
		panic(err)
	}
	fmt.Println("new:", post.IsNew(), "dirty:", post.DirtyKeys())

	if _, err := post.Save(ctx).Await(ctx); err != nil {
		panic(err)
	}
	fmt.Println("new:", post.IsNew(), "dirty:", post.DirtyKeys())

	if err := post.Increment("views", 2); err != nil {
		panic(err)
	}
	if _, err := post.Save(ctx).Await(ctx); err != nil {
		panic(err)
	}
	fmt.Println("views:", post.Get("views"))

	// Output:
	// new: true dirty: [tags title views]
	// new: false dirty: []
	// views: 3
}

func ExampleQuery_Find() {
	env := testenv.MustNew()
	defer env.Close()
	ctx := context.Background()

	var posts []*leanstore.Object
	for i, title := range []string{"alpha", "beta", "gamma", "delta"} {
		o := env.Client.Object("Post")
		if err := o.SetAll(map[string]any{"title": title, "views": i * 10}); err != nil {
			panic(err)
		}
		posts = append(posts, o)
	}
	if _, err := env.Client.SaveAll(ctx, posts).Await(ctx); err != nil {
		panic(err)
	}

	found, err := env.Client.Query("Post").
		GreaterThan("views", 5).
		Descending("views").
		Limit(2).
		Find(ctx).Await(ctx)
	if err != nil {
		panic(err)
	}
	for _, o := range found {
		fmt.Println(o.Get("title"), o.Get("views"))
	}

	n, err := env.Client.Query("Post").GreaterThan("views", 5).Count(ctx).Await(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println("count:", n)

	// Output:
	// delta 30
	// gamma 20
	// count: 3
}

func ExampleRelation_Query() {
	env := testenv.MustNew()
	defer env.Close()
	ctx := context.Background()

	var tags []*leanstore.Object
	for _, name := range []string{"go", "db"} {
		tag := env.Client.Object("Tag")
		if err := tag.Set("name", name); err != nil {
			panic(err)
		}
		tags = append(tags, tag)
	}
	if _, err := env.Client.SaveAll(ctx, tags).Await(ctx); err != nil {
		panic(err)
	}

	post := env.Client.Object("Post")
	if err := post.Relation("tags").Add(tags...); err != nil {
		panic(err)
	}
	if _, err := post.Save(ctx).Await(ctx); err != nil {
		panic(err)
	}

	members, err := post.Relation("tags").Query().Ascending("name").Find(ctx).Await(ctx)
	if err != nil {
		panic(err)
	}
	for _, tag := range members {
		fmt.Println(tag.Get("name"))
	}

	// Output:
	// db
	// go
}

func ExampleUser_SignUp() {
	env := testenv.MustNew()
	defer env.Close()
	ctx := context.Background()

	u := env.Client.NewUser()
	if err := u.SetUsername("alice"); err != nil {
		panic(err)
	}
	if err := u.SetPassword("secret"); err != nil {
		panic(err)
	}
	if _, err := u.SignUp(ctx).Await(ctx); err != nil {
		panic(err)
	}
	fmt.Println(env.Client.CurrentUser().Username(), u.Authenticated(), u.Has("password"))

	if err := env.Client.LogOut(); err != nil {
		panic(err)
	}
	fmt.Println(env.Client.CurrentUser() == nil, u.Authenticated())

	// Output:
	// alice true false
	// true false
}

func ExampleWithLogger() {
	log := lsslog.New(testenv.NewLogHandler())
	env := testenv.MustNew(leanstore.WithLogger(log))
	defer env.Close()
	ctx := context.Background()

	post := env.Client.Object("Post")
	if err := post.Set("title", "logged"); err != nil {
		panic(err)
	}
	if _, err := post.Save(ctx).Await(ctx); err != nil {
		panic(err)
	}
	if _, err := env.Client.Query("Post").Count(ctx).Await(ctx); err != nil {
		panic(err)
	}

	// Output:
	// [0] DEBUG: dispatching request intent=create, class=Post, id=
	// [1] DEBUG: dispatching request intent=query, class=Post, id=
}
