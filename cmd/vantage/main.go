// Command vantage runs the Vantage personal finance API, its recurring
// transaction worker and its database migrations.
package main

func main() {
	Execute()
}
