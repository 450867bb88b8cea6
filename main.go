package main

func main() {
	cmd, err := newRootCmd()
	if err != nil {
		exitOnError(err)
	}

	if err := cmd.Execute(); err != nil {
		exitOnError(err)
	}
}
