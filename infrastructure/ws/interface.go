package ws

type IHub interface {
	Run()
	RegisterClient(client *UserClient)
	UnregisterClient(client *UserClient)
	Broadcast(message []byte)
	GetClientCount() int
}
