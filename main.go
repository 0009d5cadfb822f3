package main

import "context"

func main() {
	ctx := shutdownContext(context.Background(), bootstrapLogger())

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exitOnError(err)
	}
}
