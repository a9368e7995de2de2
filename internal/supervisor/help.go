package supervisor

const inGameHelp = `
Во время игры:
"+" - Если вы хотите ответить на вопрос
"Да" - если вы хотите подтвердить правильность СОБСТВЕННОГО ответа, не зачтенного автоматически. Не жмите "да" на чужие ответы.
"Нет" - если вы по ошибке нажали "Да" и вам засчитали неправильный ответ.
"Пауза" - приостановить игру
"Продолжить" - продолжить игру.
В режиме паузы можно исправить неверно посчитанные очки. Для этого следует ввести команду
"Исправить" с параметром "количество очков"
Например, если вы не успели на вопрос за 50 нажать "Да", то следует исправить 100 очков командой: Исправить 100
В случае необходимости вычесть очки, просто поставьте минус перед параметром: Исправить -100`

const privateHelp = `Бот для спортивной своей игры. Команды:
/help - выводит это сообщение
/register - добавляет в очередь на создание игры
/unregister - удаляет из очереди на создание игры
/list - выводит список пакетов
/status - выводит список идущих игр
/rating - выводит таблицу рейтинга
/block - блокирует пакет
/unblock - разблокирует пакет. Невозможно для пакетов, заблокированных в старой версии бота.
/played - список игроков, с которыми вы играли в последнее время
/banlist - список игроков, которых вы заблокировали
/ban - заблокировать игрока по номеру в списке игроков, с которыми вы играли в последнее время
/unban - разблокировать игрока по номеру в списке игроков, которых вы заблокировали
` + inGameHelp

const groupHelp = `Бот для спортивной своей игры. Команды:
/help - выводит это сообщение
/game - создает новую игру
/set - задает пакет, на которм будет идти игра
/topics - устанавливает число тем
/minplayers - устанавливает минимальное число игроков
/maxplayers - устанавливает максимальное число игроков
/register - регистрирует на текущую игру и создает игру, если она не начата
/spectator - регистрирует на текущую игру зрителем
/unregister - отменяет регистрацию
/start - стартует текущую игру
/abort - отменяет текущую игру
/list - выводит список пакетов
/status - выводит список идущих игр
/rating - выводит таблицу рейтинга
/block - блокирует пакет
/unblock - разблокирует пакет. Невозможно для пакетов, заблокированных в старой версии бота.
` + inGameHelp
